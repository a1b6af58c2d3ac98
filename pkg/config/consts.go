package config

const (
	// EnvPrefix is the envconfig prefix for all service variables.
	EnvPrefix = "TRENDORA"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "TRENDORA_DB_DSN"
	EnvDBHost = "TRENDORA_DB_HOST"
	EnvDBUser = "TRENDORA_DB_USER"
	EnvDBName = "TRENDORA_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
