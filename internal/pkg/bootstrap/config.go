// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config 是所有服务共享的配置结构。
// 来源优先级: 环境变量 > YAML 配置文件 > 默认值。
type Config struct {
	App struct {
		LogLevel string `yaml:"log_level"`
		// LuckyMultiplier 抽签中签集合相对于发行量的倍数，默认 2
		LuckyMultiplier float64 `yaml:"lucky_multiplier"`
		// PaymentGraceSeconds 下单后支付的宽限期，超时触发补偿
		PaymentGraceSeconds int `yaml:"payment_grace_seconds"`
	} `yaml:"app"`
	Infra struct {
		Redis struct {
			Addrs string `yaml:"addrs"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers string `yaml:"brokers"`
		} `yaml:"kafka"`
		Mysql struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			User     string `yaml:"user"`
			Password string `yaml:"password"`
			Database string `yaml:"database"`
		} `yaml:"mysql"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Zookeeper struct {
			Servers string `yaml:"servers"`
		} `yaml:"zookeeper"`
		Nacos struct {
			Addrs     string `yaml:"addrs"`
			Namespace string `yaml:"namespace"`
			Group     string `yaml:"group"`
		} `yaml:"nacos"`
		Chain struct {
			BaseURL string `yaml:"base_url"`
		} `yaml:"chain"`
		Order struct {
			BaseURL string `yaml:"base_url"`
		} `yaml:"order"`
	} `yaml:"infra"`
}

var (
	currentConfig *Config
	configOnce    sync.Once
)

// GetCurrentConfig 返回进程级配置，首次调用时加载。
func GetCurrentConfig() *Config {
	configOnce.Do(func() {
		cfg, err := loadConfig(os.Getenv("CONFIG_PATH"))
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
		currentConfig = cfg
	})
	return currentConfig
}

func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// 环境变量覆盖，便于容器化部署
	overrideFromEnv(&cfg.Infra.Redis.Addrs, "REDIS_ADDRS")
	overrideFromEnv(&cfg.Infra.Kafka.Brokers, "KAFKA_BROKERS")
	overrideFromEnv(&cfg.Infra.Jaeger.Endpoint, "JAEGER_ENDPOINT")
	overrideFromEnv(&cfg.Infra.Zookeeper.Servers, "ZK_SERVERS")
	overrideFromEnv(&cfg.Infra.Nacos.Addrs, "NACOS_SERVER_ADDRS")
	overrideFromEnv(&cfg.Infra.Nacos.Namespace, "NACOS_NAMESPACE")
	overrideFromEnv(&cfg.Infra.Nacos.Group, "NACOS_GROUP")
	overrideFromEnv(&cfg.Infra.Chain.BaseURL, "CHAIN_BASE_URL")
	overrideFromEnv(&cfg.Infra.Order.BaseURL, "ORDER_BASE_URL")
	overrideFromEnv(&cfg.Infra.Mysql.Host, "MYSQL_HOST")
	overrideFromEnv(&cfg.Infra.Mysql.User, "MYSQL_USER")
	overrideFromEnv(&cfg.Infra.Mysql.Password, "MYSQL_PASSWORD")
	overrideFromEnv(&cfg.Infra.Mysql.Database, "MYSQL_DATABASE")

	return cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.App.LogLevel = "info"
	cfg.App.LuckyMultiplier = 2
	cfg.App.PaymentGraceSeconds = 300
	cfg.Infra.Redis.Addrs = "localhost:6379"
	cfg.Infra.Kafka.Brokers = "localhost:9092"
	cfg.Infra.Mysql.Host = "localhost"
	cfg.Infra.Mysql.Port = 3306
	cfg.Infra.Mysql.User = "root"
	cfg.Infra.Mysql.Database = "nftmall"
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Infra.Zookeeper.Servers = "localhost:2181"
	cfg.Infra.Chain.BaseURL = "http://localhost:9400"
	cfg.Infra.Order.BaseURL = "http://localhost:9500"
	return cfg
}

func overrideFromEnv(target *string, key string) {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		*target = value
	}
}
