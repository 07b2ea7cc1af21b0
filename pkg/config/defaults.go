package config

const (
	defaultStorageDriver  = "sqlite"
	defaultOperatorListen = ":8091"
	defaultIdentityHeader = "X-Vault-Coordinator"

	defaultCoordinatorIdentity = "coordinator"
	defaultCoordinatorListen   = ":8092"
	defaultTaskSize            = 2
	defaultMinLen              = 100
	defaultMaxLen              = 1000
	defaultUpdates             = 3
	defaultDeleteProbability   = 0.3
	defaultInterval            = "2m"
	defaultOperationsPerSec    = 0.2
	defaultCreateTimeout       = "10s"
	defaultReadTimeout         = "5s"
	defaultUpdateTimeout       = "20s"
	defaultDeleteTimeout       = "5s"

	defaultVectorIndexProvider = "none"

	defaultOllamaTarget        = "http://localhost:11434"
	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768

	defaultContentProvider = "wikipedia"
	defaultContentTarget   = "https://en.wikipedia.org/w/api.php"

	defaultParaphraseProvider = "ollama"
	defaultParaphraseModel    = "llama3.2"

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "vectorvault.cycles"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		Operator: OperatorConfig{
			Listen:         defaultOperatorListen,
			IdentityHeader: defaultIdentityHeader,
		},
		Coordinator: CoordinatorConfig{
			Identity:          defaultCoordinatorIdentity,
			Listen:            defaultCoordinatorListen,
			TaskSize:          defaultTaskSize,
			MinLen:            defaultMinLen,
			MaxLen:            defaultMaxLen,
			Updates:           defaultUpdates,
			DeleteProbability: defaultDeleteProbability,
			Interval:          defaultInterval,
			OperationsPerSec:  defaultOperationsPerSec,
			CreateTimeout:     defaultCreateTimeout,
			ReadTimeout:       defaultReadTimeout,
			UpdateTimeout:     defaultUpdateTimeout,
			DeleteTimeout:     defaultDeleteTimeout,
		},
		VectorIndex: VectorIndexConfig{
			Provider: defaultVectorIndexProvider,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultOllamaTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Content: ContentConfig{
			Provider:   defaultContentProvider,
			Target:     defaultContentTarget,
			Categories: defaultContentCategories(),
		},
		Paraphrase: ParaphraseConfig{
			Provider: defaultParaphraseProvider,
			Target:   defaultOllamaTarget,
			Model:    defaultParaphraseModel,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
	}
}

func defaultContentCategories() []string {
	return []string{
		"Dance", "Physics", "Mathematics", "Music", "History",
		"Biology", "Architecture", "Literature", "Astronomy", "Economics",
	}
}
