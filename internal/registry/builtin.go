package registry

import "github.com/tjfontaine/promptlink-gateway/internal/core/domain"

// Builtin returns the default agent table. Order matters: expert panels pair
// agents 2k and 2k+1, and conference chains walk a prefix of this list.
func Builtin() []domain.Agent {
	return []domain.Agent{
		{ID: "gpt-4o", Name: "GPT-4o", Model: "openai/gpt-4o", Category: "business", Specialty: "Strategic analysis and planning", CostPer1K: 0.005, MaxTokens: 4096},
		{ID: "command-r-plus", Name: "Command R+", Model: "cohere/command-r-plus", Category: "business", Specialty: "Enterprise solutions", CostPer1K: 0.002, MaxTokens: 4096},
		{ID: "gemini-pro-1.5", Name: "Gemini Pro 1.5", Model: "google/gemini-pro-1.5", Category: "business", Specialty: "Market analysis", CostPer1K: 0.001, MaxTokens: 8192},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", Model: "openai/gpt-4-turbo", Category: "business", Specialty: "Business optimization", CostPer1K: 0.003, MaxTokens: 4096},

		{ID: "deepseek-r1", Name: "DeepSeek R1", Model: "deepseek/deepseek-r1", Category: "technical", Specialty: "Advanced reasoning and coding", CostPer1K: 0.002, MaxTokens: 8192},
		{ID: "qwen-2.5-coder", Name: "Qwen 2.5 Coder", Model: "qwen/qwen-2.5-coder-32b-instruct", Category: "technical", Specialty: "Code generation", CostPer1K: 0.001, MaxTokens: 8192},
		{ID: "mixtral-8x22b", Name: "Mixtral 8x22B", Model: "mistralai/mixtral-8x22b-instruct", Category: "technical", Specialty: "Technical problem solving", CostPer1K: 0.002, MaxTokens: 4096},
		{ID: "wizardlm-2", Name: "WizardLM 2", Model: "microsoft/wizardlm-2-8x22b", Category: "technical", Specialty: "Reasoning and logic", CostPer1K: 0.001, MaxTokens: 4096},

		{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", Model: "google/gemini-2.0-flash-exp", Category: "creative", Specialty: "Creative thinking", CostPer1K: 0.001, MaxTokens: 8192},
		{ID: "perplexity-pro", Name: "Perplexity Pro", Model: "perplexity/llama-3.1-sonar-huge-128k-online", Category: "research", Specialty: "Research and fact-finding", CostPer1K: 0.003, MaxTokens: 4096},
		{ID: "llama-3.3-70b", Name: "Llama 3.3 70B", Model: "meta-llama/llama-3.3-70b-instruct", Category: "creative", Specialty: "Creative exploration", CostPer1K: 0.001, MaxTokens: 8192},
		{ID: "yi-large", Name: "Yi Large", Model: "01-ai/yi-large", Category: "analysis", Specialty: "Innovative solutions", CostPer1K: 0.003, MaxTokens: 4096},

		{ID: "mistral-large", Name: "Mistral Large", Model: "mistralai/mistral-large", Category: "communication", Specialty: "Communication and analysis", CostPer1K: 0.002, MaxTokens: 4096},
		{ID: "qwen-2.5-72b", Name: "Qwen 2.5 72B", Model: "qwen/qwen-2.5-72b-instruct", Category: "multilingual", Specialty: "Multilingual expertise", CostPer1K: 0.001, MaxTokens: 8192},
		{ID: "nous-hermes-3", Name: "Nous Hermes 3", Model: "nousresearch/nous-hermes-2-mixtral-8x7b-dpo", Category: "collaboration", Specialty: "Uncensored collaboration", CostPer1K: 0.001, MaxTokens: 4096},
		{ID: "openhermes-2.5", Name: "OpenHermes 2.5", Model: "teknium/openhermes-2.5-mistral-7b", Category: "collaboration", Specialty: "Collaborative intelligence", CostPer1K: 0.0005, MaxTokens: 4096},

		{ID: "dolphin-mixtral", Name: "Dolphin Mixtral", Model: "cognitivecomputations/dolphin-2.6-mixtral-8x7b", Category: "synthesis", Specialty: "Uncensored synthesis", CostPer1K: 0.001, MaxTokens: 4096},
		{ID: "starling-7b", Name: "Starling 7B", Model: "berkeley-nest/starling-lm-7b-alpha", Category: "synthesis", Specialty: "Fast collaborative synthesis", CostPer1K: 0.0005, MaxTokens: 4096},
		{ID: "neural-chat", Name: "Neural Chat", Model: "intel/neural-chat-7b-v3-1", Category: "communication", Specialty: "Intelligent conversation", CostPer1K: 0.0005, MaxTokens: 4096},
		{ID: "zephyr-beta", Name: "Zephyr Beta", Model: "huggingfaceh4/zephyr-7b-beta", Category: "synthesis", Specialty: "Advanced reasoning synthesis", CostPer1K: 0.0005, MaxTokens: 4096},
	}
}
