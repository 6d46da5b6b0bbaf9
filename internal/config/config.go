package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	instance *Config
	once     sync.Once
)

// MeterConfig holds the metering platform endpoints and credentials. The
// secret fields are normally supplied through the environment, not yaml.
type MeterConfig struct {
	AuthURL      string `yaml:"auth_url"`
	APIURL       string `yaml:"api_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	GrantType    string `yaml:"grant_type"`
	Scope        string `yaml:"scope"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	DeviceID     string `yaml:"device_id"`
	SensorID     string `yaml:"sensor_id"`
}

// WeatherConfig holds the weather provider settings. An empty APIKey
// switches the weather source to simulated observations.
type WeatherConfig struct {
	APIKey          string  `yaml:"api_key"`
	APIURL          string  `yaml:"api_url"`
	City            string  `yaml:"city"`
	CountryCode     string  `yaml:"country_code"`
	Latitude        float64 `yaml:"latitude"`
	Longitude       float64 `yaml:"longitude"`
	CacheTTLMinutes int     `yaml:"cache_ttl_minutes"`
}

// Config - can/will add more later
type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Meter   MeterConfig   `yaml:"meter"`
	Weather WeatherConfig `yaml:"weather"`
	Redis   RedisConfig   `yaml:"redis"`
	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
}

// Load reads the yaml config file once, then layers .env and environment
// overrides on top.
func Load(configPath string) (*Config, error) {
	var err error
	once.Do(func() {
		_ = godotenv.Load() // ignore missing file

		instance = defaults()

		data, readErr := os.ReadFile(configPath)
		if readErr != nil {
			err = fmt.Errorf("failed to read config file %s: %w", configPath, readErr)
			return
		}

		if parseErr := yaml.Unmarshal(data, instance); parseErr != nil {
			err = fmt.Errorf("failed to parse config: %w", parseErr)
			return
		}

		instance.applyEnv()

		if validateErr := instance.validate(); validateErr != nil {
			err = validateErr
			return
		}
	})

	return instance, err
}

// Get returns the loaded config and panics if Load was never called.
func Get() *Config {
	if instance == nil {
		panic("config not loaded - call config.Load() first")
	}
	return instance
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Meter.GrantType = "password"
	cfg.Meter.Scope = "api1"
	cfg.Weather.APIURL = "https://api.openweathermap.org/data/2.5/forecast"
	cfg.Weather.City = "Johannesburg"
	cfg.Weather.CountryCode = "ZA"
	cfg.Weather.Latitude = -26.2041
	cfg.Weather.Longitude = 28.0473
	cfg.Weather.CacheTTLMinutes = 30
	cfg.Redis = GetRedisConfig()
	return cfg
}

func (c *Config) applyEnv() {
	setIfEnv(&c.Meter.AuthURL, "METER_AUTH_URL")
	setIfEnv(&c.Meter.APIURL, "METER_API_URL")
	setIfEnv(&c.Meter.ClientID, "METER_CLIENT_ID")
	setIfEnv(&c.Meter.ClientSecret, "METER_CLIENT_SECRET")
	setIfEnv(&c.Meter.Username, "METER_USERNAME")
	setIfEnv(&c.Meter.Password, "METER_PASSWORD")
	setIfEnv(&c.Meter.DeviceID, "METER_DEVICE_ID")
	setIfEnv(&c.Meter.SensorID, "METER_SENSOR_ID")
	setIfEnv(&c.Weather.APIKey, "WEATHER_API_KEY")
	setIfEnv(&c.Database.DSN, "DATABASE_DSN")
	if c.Database.DSN == "" {
		c.Database.DSN = GetDatabaseDSN()
	}

	rc := GetRedisConfig()
	if rc.Addr != "" {
		c.Redis = rc
	}

	if port := os.Getenv("PORT"); port != "" {
		fmt.Sscanf(port, "%d", &c.Server.Port)
	}
}

func setIfEnv(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive")
	}
	if c.Meter.AuthURL == "" {
		return fmt.Errorf("meter.auth_url cannot be empty")
	}
	if c.Meter.APIURL == "" {
		return fmt.Errorf("meter.api_url cannot be empty")
	}
	if c.Meter.DeviceID == "" || c.Meter.SensorID == "" {
		return fmt.Errorf("meter.device_id and meter.sensor_id cannot be empty")
	}
	return nil
}
