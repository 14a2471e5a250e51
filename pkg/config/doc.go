// Package config loads potkeeper's configuration.
//
// Values are resolved in order: built-in defaults, an optional YAML file,
// then POTKEEPER_* environment variables. The result is validated before it
// is returned.
//
// # File
//
//	server:
//	  port: "8080"
//	  health_port: "9090"
//	  public_url: https://plants.example.com
//	storage:
//	  postgres_url: postgres://potkeeper@localhost/potkeeper?sslmode=disable
//	  s3_bucket: potkeeper-images
//	  redis_url: redis://localhost:6379/0
//	auth:
//	  jwt_secret: change-me-to-at-least-32-bytes-of-entropy
//	  admin_emails: [owner@example.com]
//	quotas:
//	  anonymous: 3
//	  unverified: 10
//	  verified: 50
//
// # Environment
//
//	POTKEEPER_CONFIG="/etc/potkeeper/config.yaml"
//	POTKEEPER_PORT="8080"
//	POTKEEPER_HEALTH_PORT="9090"
//	POTKEEPER_POSTGRES_URL="postgres://localhost/potkeeper"
//	POTKEEPER_AUTO_MIGRATE="true"
//	POTKEEPER_S3_BUCKET="potkeeper-images"
//	POTKEEPER_REDIS_URL="redis://localhost:6379"
//	POTKEEPER_JWT_SECRET="..."
//	POTKEEPER_ADMIN_EMAILS="owner@example.com,ops@example.com"
//	POTKEEPER_IDENTIFY_REQUESTS="20"
//	POTKEEPER_LOG_LEVEL="debug"
//	POTKEEPER_OTEL_ENABLED="true"
//
// Lists such as POTKEEPER_ADMIN_EMAILS and POTKEEPER_CORS_ORIGINS are
// comma-separated.
package config
