package main

import "time"

type Config struct {
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	LimitMessages        *int          `env:"LIMIT_MESSAGES"`
	GCInterval           time.Duration `env:"GC_INTERVAL,default=5m"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel             string        `env:"LOG_LEVEL,required=true"`
	AuthSecret           string        `env:"AUTH_SECRET,required=true"`
	AuthTokenDuration    time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	Host                 string        `env:"HOST,default=localhost"`
	Port                 int           `env:"PORT,default=8080"`
}
