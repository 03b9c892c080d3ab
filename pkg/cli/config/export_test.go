package config

// NewLLMForTest creates an LLM config for testing purposes
func NewLLMForTest(provider, projectID, openaiAPIKey string) *LLM {
	return &LLM{
		provider:     provider,
		projectID:    projectID,
		location:     "us-central1",
		openaiAPIKey: openaiAPIKey,
	}
}

// NewEmbeddingForTest creates an Embedding config for testing purposes
func NewEmbeddingForTest(provider string) *Embedding {
	return &Embedding{
		provider:  provider,
		maxSeqLen: 512,
		cacheSize: 16,
	}
}

// NewCacheForTest creates a Cache config for testing purposes
func NewCacheForTest(backend string, size int) *Cache {
	return &Cache{
		backend: backend,
		size:    size,
	}
}
