package testcontainers

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresConfig holds configuration for PostgreSQL test container.
type PostgresConfig struct {
	// User is the PostgreSQL superuser (default: postgres)
	User string
	// Password is the superuser password (default: postgres)
	Password string
	// Database is the database name (default: vitals)
	Database string
	// ContainerName is the name of the container (optional)
	ContainerName string
}

// PostgresInfo is how tests reach a started container.
type PostgresInfo struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// DSN renders the libpq connection string.
func (i *PostgresInfo) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		i.Host, i.Port, i.User, i.Password, i.Database)
}

// StartPostgres starts a PostgreSQL container for testing.
func StartPostgres(ctx context.Context, config *PostgresConfig) (testcontainers.Container, *PostgresInfo, error) {
	// Set defaults
	if config == nil {
		config = &PostgresConfig{}
	}
	if config.User == "" {
		config.User = "postgres"
	}
	if config.Password == "" {
		config.Password = "postgres"
	}
	if config.Database == "" {
		config.Database = "vitals"
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			),
			Env: map[string]string{
				"POSTGRES_USER":     config.User,
				"POSTGRES_PASSWORD": config.Password,
				"POSTGRES_DB":       config.Database,
			},
			Name: config.ContainerName,
		},
		Started: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start PostgreSQL container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		if termErr := container.Terminate(ctx); termErr != nil {
			return nil, nil, fmt.Errorf("failed to get container host: %w (cleanup error: %w)", err, termErr)
		}
		return nil, nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		if termErr := container.Terminate(ctx); termErr != nil {
			return nil, nil, fmt.Errorf("failed to get container port: %w (cleanup error: %w)", err, termErr)
		}
		return nil, nil, fmt.Errorf("failed to get container port: %w", err)
	}

	return container, &PostgresInfo{
		Host:     host,
		Port:     port.Int(),
		User:     config.User,
		Password: config.Password,
		Database: config.Database,
	}, nil
}
