package config

import (
	"fmt"
	"io"
	"os"
	"text/template"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the coffee shop order system.
type Config struct {
	Bot         BotConfig      `yaml:"bot"`
	Orders      OrdersConfig   `yaml:"orders"`
	PickupTimes []int          `yaml:"pickup_times"`
	Session     SessionConfig  `yaml:"session"`
	Menu        MenuConfig     `yaml:"menu"`
	Database    DatabaseConfig `yaml:"database"`
	RabbitMQ    RabbitMQConfig `yaml:"rabbitmq"`
}

// BotConfig holds bot identity and outbound message templates.
// OrderConfirmedTemplate and StaffOrderTemplate are text/template strings;
// see checkout.CustomerMessageData and checkout.StaffMessageData for the
// fields they may reference.
type BotConfig struct {
	Name                   string `yaml:"name"`
	Token                  string `yaml:"token"`
	StaffChatID            string `yaml:"staff_chat_id"`
	WelcomeMessage         string `yaml:"welcome_message"`
	ContactRequestMessage  string `yaml:"contact_request_message"`
	OrderConfirmedTemplate string `yaml:"order_confirmed_template"`
	StaffOrderTemplate     string `yaml:"staff_order_template"`
}

// OrdersConfig holds order id allocation and storage backend settings.
type OrdersConfig struct {
	Prefix       string `yaml:"prefix"`
	CounterStart int    `yaml:"counter_start"`
	Storage      string `yaml:"storage"`
	FilePath     string `yaml:"file_path"`
}

// SessionConfig holds conversation session settings. A TTL of 0 disables
// idle session eviction.
type SessionConfig struct {
	TTLMinutes int `yaml:"ttl_minutes"`
}

// MenuConfig points at the menu catalog file.
type MenuConfig struct {
	Path string `yaml:"path"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// RabbitMQConfig holds RabbitMQ connection configuration. An empty host
// disables staff notification publishing.
type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Load reads configuration from a YAML file. A .env file, if present, is
// loaded first; secrets always win over file values via environment
// variables.
func Load(filename string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaults()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func defaults() *Config {
	return &Config{
		Bot: BotConfig{
			Name:                  "Coffee Shop Bot",
			WelcomeMessage:        "Welcome to our Coffee Shop!\n\nI can help you place a take-away order. Just follow the simple steps.",
			ContactRequestMessage: "Please share your contact information so we can reach you if needed.\n\nTap the button below to share your contact.",
			OrderConfirmedTemplate: "Your order is accepted!\n\nThe barista is preparing it.\nPickup time: {{.PickupTime}}\nOrder number: {{.OrderNumber}}\n\nThank you for choosing us!",
			StaffOrderTemplate: "NEW ORDER #{{.OrderNumber}}\n\nCustomer: {{.CustomerName}}\nPhone: {{.PhoneNumber}}\n\nItems:\n{{.Items}}\n\nPickup time: {{.PickupTime}}\nUser ID: {{.UserID}}",
		},
		Orders: OrdersConfig{
			Prefix:       "COFFEE",
			CounterStart: 1000,
			Storage:      "file",
			FilePath:     "orders.json",
		},
		PickupTimes: []int{10, 20, 30},
		Session:     SessionConfig{TTLMinutes: 30},
		Menu:        MenuConfig{Path: "menu.yaml"},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Database: "coffee_shop",
		},
		RabbitMQ: RabbitMQConfig{
			Port: 5672,
			User: "guest",
		},
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		c.Bot.Token = v
	}
	if v := os.Getenv("STAFF_CHAT_ID"); v != "" {
		c.Bot.StaffChatID = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("RABBITMQ_PASSWORD"); v != "" {
		c.RabbitMQ.Password = v
	}
}

// Validate checks values the rest of the system assumes are well-formed.
// Message templates are parsed and rendered against placeholder data here
// so a broken template, or a typo in a field name, fails at startup
// instead of during a confirmation.
func (c *Config) Validate() error {
	if c.Orders.Prefix == "" {
		return fmt.Errorf("orders.prefix must not be empty")
	}
	if c.Orders.CounterStart < 0 {
		return fmt.Errorf("orders.counter_start must not be negative")
	}
	switch c.Orders.Storage {
	case "file", "postgres":
	default:
		return fmt.Errorf("orders.storage must be one of: file, postgres")
	}
	if c.Orders.Storage == "file" && c.Orders.FilePath == "" {
		return fmt.Errorf("orders.file_path is required for file storage")
	}
	if len(c.PickupTimes) == 0 {
		return fmt.Errorf("pickup_times must not be empty")
	}
	for _, m := range c.PickupTimes {
		if m <= 0 {
			return fmt.Errorf("pickup_times entries must be positive, got %d", m)
		}
	}
	if err := validateTemplate("order_confirmed", c.Bot.OrderConfirmedTemplate, map[string]interface{}{
		"PickupTime":  "",
		"OrderNumber": "",
	}); err != nil {
		return fmt.Errorf("invalid bot.order_confirmed_template: %w", err)
	}
	if err := validateTemplate("staff_order", c.Bot.StaffOrderTemplate, map[string]interface{}{
		"OrderNumber":  "",
		"CustomerName": "",
		"PhoneNumber":  "",
		"Items":        "",
		"PickupTime":   "",
		"UserID":       int64(0),
	}); err != nil {
		return fmt.Errorf("invalid bot.staff_order_template: %w", err)
	}
	return nil
}

// validateTemplate parses a template and renders it against the fields it
// is allowed to reference. Parse alone accepts field typos; only Execute
// rejects them.
func validateTemplate(name, text string, data map[string]interface{}) error {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return err
	}
	return tmpl.Execute(io.Discard, data)
}

// DatabaseURL returns a PostgreSQL connection URL.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Database)
}

// RabbitMQURL returns an AMQP connection URL.
func (c *Config) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/",
		c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port)
}
