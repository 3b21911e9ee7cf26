package config

import (
	"fmt"
	"strings"
)

// Variable documents one environment variable.
type Variable struct {
	Env         string
	Key         string // koanf path, also the YAML path
	Default     string
	Description string
}

var variables = []Variable{
	{"HTTP_HOST", "http.host", "127.0.0.1", "Address the HTTP listener binds to"},
	{"HTTP_PORT", "http.port", "8080", "Port the HTTP listener binds to"},
	{"HTTP_SHUTDOWN_TIMEOUT", "http.shutdown_timeout", "5s", "Grace period for in-flight requests on shutdown"},
	{"DB_URL", "db.url", "postgres://postgres@localhost:5432/postgres?sslmode=disable", "PostgreSQL connection URL"},
	{"DB_POOL_MIN_SIZE", "db.pool_min_size", "1", "Connections opened at startup and kept open"},
	{"DB_POOL_MAX_SIZE", "db.pool_max_size", "10", "Maximum number of pooled connections"},
	{"DB_POOL_MAX_QUERIES", "db.pool_max_queries", "50000", "Queries after which a connection is replaced, 0 disables"},
	{"DB_POOL_MAX_INACTIVE_CONNECTION_LIFETIME", "db.pool_max_inactive_connection_lifetime", "300s", "Idle time after which a connection is closed"},
	{"DB_PREPARE_CONNECT_MAX_ATTEMPTS", "db.connect_max_attempts", "60", "Connection attempts at startup"},
	{"DB_PREPARE_CONNECT_RETRY_DELAY", "db.connect_retry_delay", "1s", "Delay between connection attempts"},
	{"DB_CLOSE_TIMEOUT", "db.close_timeout", "10s", "Time to wait for in-flight queries on shutdown"},
	{"BROKER_URL", "broker.url", "nats://127.0.0.1:4222", "NATS server URL"},
	{"BROKER_HEARTBEAT", "broker.heartbeat", "5s", "Ping interval used to detect dead connections"},
	{"BROKER_PREPARE_CONNECT_MAX_ATTEMPTS", "broker.connect_max_attempts", "60", "Connection attempts at startup"},
	{"BROKER_PREPARE_CONNECT_RETRY_DELAY", "broker.connect_retry_delay", "1s", "Delay between connection attempts"},
	{"TRACER_ENABLED", "tracer.enabled", "false", "Export spans over OTLP gRPC"},
	{"TRACER_NAME", "tracer.name", "ferry", "Service name attached to spans"},
	{"TRACER_URL", "tracer.url", "localhost:4317", "OTLP gRPC collector endpoint"},
	{"TRACER_DEFAULT_SAMPLED", "tracer.default_sampled", "true", "Sample traces started by this process"},
	{"TRACER_TLS_INSECURE", "tracer.tls_insecure", "false", "Use TLS without verifying the collector certificate"},
	{"TRACER_TLS_CA_PATH", "tracer.tls_ca_path", "", "CA certificate used to verify the collector"},
	{"METRICS_ENABLED", "metrics.enabled", "true", "Serve Prometheus metrics on /metrics"},
	{"METRICS_NAME", "metrics.name", "ferry", "Value of the service label on process metrics"},
	{"SHUTDOWN_TIMEOUT", "shutdown_timeout", "30s", "Upper bound for stopping a single component"},
}

var (
	keyByEnv = map[string]string{}
	envByKey = map[string]string{}
)

func init() {
	for _, v := range variables {
		keyByEnv[v.Env] = v.Key
		envByKey[v.Key] = v.Env
	}
}

// Variables returns every recognized environment variable.
func Variables() []Variable {
	out := make([]Variable, len(variables))
	copy(out, variables)
	return out
}

// MarkdownTable renders Variables as a Markdown table.
func MarkdownTable() string {
	var b strings.Builder
	b.WriteString("| Variable | Default | Description |\n")
	b.WriteString("|----------|---------|-------------|\n")
	for _, v := range variables {
		def := v.Default
		if def != "" {
			def = "`" + def + "`"
		}
		fmt.Fprintf(&b, "| `%s` | %s | %s |\n", v.Env, def, v.Description)
	}
	return b.String()
}
