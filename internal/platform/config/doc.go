// Package config loads process configuration from the environment (and an
// optional .env file) at startup.
package config
