package config

// NewGeminiForTest creates a Gemini config for testing purposes
func NewGeminiForTest(projectID, location string) *Gemini {
	return &Gemini{
		projectID: projectID,
		location:  location,
	}
}

// NewVectorStoreForTest creates a VectorStore config for testing purposes
func NewVectorStoreForTest(backend string, dimension int, chromemPath, projectID, postgresDSN string) *VectorStore {
	return &VectorStore{
		backend:       backend,
		dimension:     dimension,
		chromemPath:   chromemPath,
		projectID:     projectID,
		postgresDSN:   postgresDSN,
		postgresTable: "mnemosyne_vectors",
	}
}

// NewEmbeddingForTest creates an Embedding config for testing purposes
func NewEmbeddingForTest(provider, openAIKey, openAIBaseURL string, cacheSize int) *Embedding {
	return &Embedding{
		provider:      provider,
		openAIKey:     openAIKey,
		openAIBaseURL: openAIBaseURL,
		cacheSize:     cacheSize,
	}
}

// NewLoggerForTest creates a Logger config for testing purposes
func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{
		level:  level,
		format: format,
		output: output,
	}
}
