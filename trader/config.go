package trader

import (
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/xyths/hs"
	"github.com/xyths/qbracket/executor"
	"os"
)

const (
	envApiKey    = "BINANCE_API_KEY"
	envApiSecret = "BINANCE_API_SECRET"

	defaultPaperBalance = "10000"
)

type Config struct {
	Exchange hs.ExchangeConf
	Mongo    hs.MongoConf
	Log      hs.LogConf
	Robots   []hs.BroadcastConf
	Metrics  MetricsConf
	Paper    PaperConf
	Strategy executor.Config
}

type MetricsConf struct {
	Listen string // host:port, empty disables the server
}

// PaperConf seeds the simulated venue used by dry runs.
type PaperConf struct {
	Balance string
}

// LoadConfig reads the json config. Credentials missing from it are taken from the environment,
// after loading a .env file in the working directory if there is one.
func LoadConfig(file string) (cfg Config, err error) {
	if err = hs.ParseJsonConfig(file, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", file)
	}
	if err = godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return cfg, errors.Wrap(err, "load .env")
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if cfg.Exchange.Key == "" {
		cfg.Exchange.Key = os.Getenv(envApiKey)
	}
	if cfg.Exchange.Secret == "" {
		cfg.Exchange.Secret = os.Getenv(envApiSecret)
	}
}
