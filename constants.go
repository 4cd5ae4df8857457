package dvm

const (
	Env_DiscordAlertWebhook = "DISCORD_ALERT_WEBHOOK"
	Env_DiscordTestWebhook  = "DISCORD_TEST_WEBHOOK"
	Env_Env                 = "ENV"
	Env_LogLevel            = "LOG_LEVEL"
	Env_Relays              = "DVM_RELAYS"
	Env_RpcTimeout          = "DVM_RPC_TIMEOUT"
	Env_SecretKey           = "DVM_SECRET_KEY"
	Env_ServiceId           = "DVM_SERVICE_ID"
)

const (
	EnvTag_Dev  = "dev"
	EnvTag_Qa   = "qa"
	EnvTag_Prod = "prod"
)
