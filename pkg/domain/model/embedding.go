package model

// DefaultEmbeddingDimension matches Gemini text-embedding-004 (768 dimensions).
// Every vector stored together must share one dimension.
const DefaultEmbeddingDimension = 768
