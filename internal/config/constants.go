package config

// Constants defining default values for application configuration
const (
	DefaultDBPath = "./replydeck.db"

	DefaultServerPort = 8080
	DefaultServerHost = "" // Empty string means all interfaces

	DefaultItemSyncLimit    = 25  // Remote posts/videos fetched per sync run
	DefaultCommentSyncLimit = 100 // Remote comments fetched per sync run

	DefaultGenerationURL   = "http://localhost:11434"
	DefaultGenerationModel = "llama3"

	DefaultLogLevel = "info"
)
