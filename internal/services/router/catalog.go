package router

// Category groups models in the catalog listing
type Category string

const (
	CategoryLanguage  Category = "language"
	CategoryCoding    Category = "coding"
	CategoryVision    Category = "vision"
	CategoryReasoning Category = "reasoning"
	CategoryImage     Category = "image"
)

// ModelInfo describes one model reachable through the completion paths
type ModelInfo struct {
	Key      string   `json:"key"`
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Free     bool     `json:"free"`
}

const (
	ModelPrimary   = "meta-llama/llama-3.3-70b-instruct:free"
	ModelCoder     = "qwen/qwen3-coder:free"
	ModelVision    = "meta-llama/llama-3.2-11b-vision-instruct"
	ModelReasoning = "tngtech/deepseek-r1t2-chimera:free"

	// ImageGeneration marks a rule that routes to image synthesis instead of a model.
	ImageGeneration = "IMAGE_GENERATION"
)

var catalog = []ModelInfo{
	{Key: "llama33", ID: ModelPrimary, Name: "LLaMA 3.3 70B", Category: CategoryLanguage, Free: true},
	{Key: "llama31_8b", ID: "meta-llama/llama-3.1-8b-instruct", Name: "LLaMA 3.1 8B", Category: CategoryLanguage},
	{Key: "llama31_70b", ID: "meta-llama/llama-3.1-70b-instruct", Name: "LLaMA 3.1 70B", Category: CategoryLanguage},
	{Key: "mistralNemo", ID: "mistralai/mistral-nemo", Name: "Mistral Nemo", Category: CategoryLanguage},
	{Key: "mixtral", ID: "mistralai/mixtral-8x7b-instruct", Name: "Mixtral 8x7B", Category: CategoryLanguage},
	{Key: "phi3", ID: "microsoft/phi-3-mini-128k-instruct", Name: "Phi-3 Mini 128K", Category: CategoryLanguage},
	{Key: "phi4", ID: "microsoft/phi-4", Name: "Phi-4", Category: CategoryLanguage},

	{Key: "qwenCoder", ID: ModelCoder, Name: "Qwen3 Coder", Category: CategoryCoding, Free: true},
	{Key: "qwen25Coder", ID: "qwen/qwen-2.5-coder-32b-instruct", Name: "Qwen 2.5 Coder 32B", Category: CategoryCoding},
	{Key: "deepseekChat", ID: "deepseek/deepseek-chat-v3-0324", Name: "DeepSeek Chat V3", Category: CategoryCoding},
	{Key: "devstral", ID: "mistralai/devstral-2512:free", Name: "Devstral", Category: CategoryCoding, Free: true},

	{Key: "llava", ID: ModelVision, Name: "LLaMA 3.2 Vision 11B", Category: CategoryVision},
	{Key: "llamaVision90", ID: "meta-llama/llama-3.2-90b-vision-instruct", Name: "LLaMA 3.2 Vision 90B", Category: CategoryVision},
	{Key: "qwenVL", ID: "qwen/qwen3-vl-8b-instruct", Name: "Qwen3 VL 8B", Category: CategoryVision},
	{Key: "phi4Multimodal", ID: "microsoft/phi-4-multimodal-instruct", Name: "Phi-4 Multimodal", Category: CategoryVision},

	{Key: "r1Chimera", ID: ModelReasoning, Name: "DeepSeek R1 Chimera", Category: CategoryReasoning, Free: true},

	{Key: "flux", ID: "flux", Name: "FLUX", Category: CategoryImage, Free: true},
	{Key: "sdxl", ID: "sdxl", Name: "SDXL", Category: CategoryImage, Free: true},
	{Key: "realisticVision", ID: "realistic-vision-v5", Name: "Realistic Vision", Category: CategoryImage, Free: true},
	{Key: "juggernaut", ID: "juggernaut-xl", Name: "Juggernaut XL", Category: CategoryImage, Free: true},
	{Key: "dreamshaper", ID: "dreamshaper-8", Name: "DreamShaper", Category: CategoryImage, Free: true},
}

// Models returns the catalog grouped by category, in catalog order.
func Models() map[Category][]ModelInfo {
	out := make(map[Category][]ModelInfo)
	for _, m := range catalog {
		out[m.Category] = append(out[m.Category], m)
	}
	return out
}

// Lookup finds a model by id or catalog key.
func Lookup(idOrKey string) (ModelInfo, bool) {
	for _, m := range catalog {
		if m.ID == idOrKey || m.Key == idOrKey {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// DisplayName returns the catalog name of a model, or the id itself.
func DisplayName(id string) string {
	if m, ok := Lookup(id); ok {
		return m.Name
	}
	return id
}
