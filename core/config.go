package core

import (
	"fmt"
	"log"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env            string `yaml:"env" env-default:"local"`
	TelegramApiKey string `yaml:"telegram_api_key" env-default:""`
	OpenAIApiKey   string `yaml:"openai_api_key" env-default:""`
	Model          string `yaml:"model" env-default:"gpt-4o-mini"`
	Submission     struct {
		MinLength int `yaml:"min_length" env-default:"10"`
		MaxLength int `yaml:"max_length" env-default:"4000"`
	} `yaml:"submission"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env-default:"false"`
		Host     string `yaml:"host" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env-default:"27017"`
		User     string `yaml:"user" env-default:"admin"`
		Password string `yaml:"password" env-default:"pass"`
		Database string `yaml:"database" env-default:""`
	} `yaml:"mongo"`
	Redis struct {
		Enabled  bool   `yaml:"enabled" env-default:"false"`
		Address  string `yaml:"address" env-default:"127.0.0.1:6379"`
		Password string `yaml:"password" env-default:""`
	} `yaml:"redis"`
}

var instance *Config
var once sync.Once

func GetConfig(path string) (*Config, error) {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("config: %s; %s", err, desc)
			instance = nil
		}
	})
	return instance, err
}

func MustLoad(path string) *Config {
	conf, err := GetConfig(path)
	if err != nil {
		log.Fatal(err)
	}
	return conf
}
