package main

import (
	"context"
	"os"
	"time"

	"github.com/diwise/context-broker/pkg/ngsild/client"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/diwise/integration-acurite/internal/pkg/application"
	"github.com/diwise/integration-acurite/internal/pkg/application/acurite"
	"github.com/diwise/integration-acurite/internal/pkg/application/drivers"
	"github.com/diwise/integration-acurite/internal/pkg/application/fiware"
	"github.com/diwise/integration-acurite/internal/pkg/application/lwm2m"
	"github.com/diwise/integration-acurite/internal/pkg/application/nodes"
	"github.com/diwise/integration-acurite/internal/pkg/infrastructure/polyglot"
	"github.com/diwise/integration-acurite/internal/pkg/infrastructure/registry"
)

const serviceName string = "integration-acurite"

var (
	flagBaseURL   string
	flagEnumsPath string
)

var rootCmd = &cobra.Command{
	Use:          serviceName,
	Short:        "Reports AcuRite weather station readings as controller nodes",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "AcuRite api base url (env: ACURITE_BASEURL)")
	rootCmd.PersistentFlags().StringVar(&flagEnumsPath, "enums", "", "Path to a yaml file with enum tables (env: ACURITE_ENUMS_PATH)")
}

func main() {
	serviceVersion := buildinfo.SourceVersion()

	ctx, logger, cleanup := o11y.Init(context.Background(), serviceName, serviceVersion)
	defer cleanup()

	rootCmd.Version = serviceVersion
	rootCmd.AddCommand(newRunCmd(logger), newDiscoverCmd(logger))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cleanup()
		os.Exit(1)
	}
}

type service struct {
	app      application.IntegrationAcurite
	registry *registry.Registry
	params   map[string]string
	closers  []func()
}

func (s *service) close() {
	for _, c := range s.closers {
		c()
	}
}

func setupService(ctx context.Context, logger zerolog.Logger) (*service, error) {
	s := &service{}

	baseUrl := flagOrEnv(logger, flagBaseURL, "ACURITE_BASEURL", acurite.DefaultBaseURL)
	enumsPath := flagOrEnv(logger, flagEnumsPath, "ACURITE_ENUMS_PATH", "")
	timeout := durationOrDefault(logger, "ACURITE_HTTP_TIMEOUT", acurite.DefaultTimeout)

	s.params = map[string]string{
		application.UserParam:     env.GetVariableOrDefault(logger, "ACURITE_USER", ""),
		application.PasswordParam: env.GetVariableOrDefault(logger, "ACURITE_PASSWORD", ""),
	}

	enums, err := drivers.LoadEnumTables(enumsPath)
	if err != nil {
		return nil, err
	}

	reporters, err := s.setupReporters(ctx, logger)
	if err != nil {
		return nil, err
	}

	s.registry = registry.New(logger, reporters...)

	mapper := drivers.NewMapper(enums, drivers.WithLogger(logger))
	s.app = application.New(acurite.New(baseUrl, timeout), s.registry, mapper, logger)

	return s, nil
}

func (s *service) setupReporters(ctx context.Context, logger zerolog.Logger) ([]nodes.Reporter, error) {
	reporters := []nodes.Reporter{}

	if brokerUrl := env.GetVariableOrDefault(logger, "MQTT_BROKER_URL", ""); brokerUrl != "" {
		cfg := polyglot.Config{
			BrokerURL: brokerUrl,
			User:      env.GetVariableOrDefault(logger, "MQTT_USER", ""),
			Password:  env.GetVariableOrDefault(logger, "MQTT_PASSWORD", ""),
			Topic:     env.GetVariableOrDefault(logger, "MQTT_TOPIC", polyglot.DefaultTopic),
		}

		mqttClient, err := polyglot.Connect(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { mqttClient.Disconnect(250) })

		reporters = append(reporters, polyglot.NewReporter(mqttClient, cfg.Topic))
	}

	if contextBrokerUrl := env.GetVariableOrDefault(logger, "CONTEXT_BROKER_URL", ""); contextBrokerUrl != "" {
		reporters = append(reporters, fiware.NewReporter(client.NewContextBrokerClient(contextBrokerUrl)))
	}

	if lwm2mUrl := env.GetVariableOrDefault(logger, "LWM2M_ENDPOINT", ""); lwm2mUrl != "" {
		reporters = append(reporters, lwm2m.NewReporter(lwm2mUrl, lwm2m.Send))
	}

	if len(reporters) == 0 {
		logger.Warn().Msg("no reporters configured, node values will only be available over http")
	}

	return reporters, nil
}

func flagOrEnv(logger zerolog.Logger, flag, key, fallback string) string {
	if flag != "" {
		return flag
	}
	return env.GetVariableOrDefault(logger, key, fallback)
}

func durationOrDefault(logger zerolog.Logger, key string, fallback time.Duration) time.Duration {
	value := env.GetVariableOrDefault(logger, key, "")
	if value == "" {
		return fallback
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn().Err(err).Str("variable", key).Msg("invalid duration, using default")
		return fallback
	}

	return d
}
