package config

// EnvPrefix is passed to envconfig; individual fields carry fully qualified
// names so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv          = "FRAXION_APP_ENV"
	EnvPort            = "FRAXION_APP_PORT"
	EnvDBDSN           = "FRAXION_DB_DSN"
	EnvDBHost          = "FRAXION_DB_HOST"
	EnvDBUser          = "FRAXION_DB_USER"
	EnvDBName          = "FRAXION_DB_NAME"
	EnvRedisURL        = "FRAXION_REDIS_URL"
	EnvJWTSecret       = "FRAXION_JWT_SECRET"
	EnvJWTIssuer       = "FRAXION_JWT_ISSUER"
	EnvRatesBaseURL    = "FRAXION_RATES_BASE_URL"
	EnvAnchorEndpoint  = "FRAXION_ANCHOR_ENDPOINT"
	EnvPaymentBaseURL  = "FRAXION_PAYMENT_BASE_URL"
	EnvAnchorThreshold = "FRAXION_ANCHOR_DEGRADED_THRESHOLD"
)

var fallbackDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
