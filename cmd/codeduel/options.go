package main

import (
	"os"

	"codeduel/internal/api"
	"codeduel/internal/database"
	"codeduel/internal/judge"
	"codeduel/internal/match"
	"codeduel/internal/scheduler"
	"codeduel/internal/verify"
)

type Options struct {
	Addr      string              `toml:"addr"`
	DB        database.Options    `toml:"db"`
	Match     match.Options       `toml:"match"`
	Judge     judge.ClientOptions `toml:"judge"`
	Verify    verify.Options      `toml:"verify"`
	Scheduler scheduler.Options   `toml:"scheduler"`
	API       api.ServerOptions   `toml:"api"`
}

func (o *Options) FillDefaults() {
	if o.Addr == "" {
		o.Addr = ":8080"
	}
	if o.DB.Path == "" {
		o.DB.Path = "codeduel.db"
	}
	o.DB.FillDefaults()
	o.Match.FillDefaults()
	o.Judge.FillDefaults()
	o.Verify.FillDefaults()
	o.Scheduler.FillDefaults()
	o.API.FillDefaults()
}

// MixEnv applies environment overrides on top of the options file, so that
// deployments can tweak the listen address and database location without
// editing configs.
func (o *Options) MixEnv() {
	if v := os.Getenv("CODEDUEL_ADDR"); v != "" {
		o.Addr = v
	}
	if v := os.Getenv("CODEDUEL_DB"); v != "" {
		o.DB.Path = v
	}
	if v := os.Getenv("CODEDUEL_JUDGE_URL"); v != "" {
		o.Judge.BaseURL = v
	}
}
