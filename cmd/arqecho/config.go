package main

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// ############
//  Config File
// ############
type configRepr struct {
	Mode    string `toml:"mode"` // "server" or "client"
	Listen  string `toml:"listen"`
	Dial    string `toml:"dial"`
	Conv    uint32 `toml:"conv"`
	Crypt   string `toml:"crypt"`    // "", "aes", "salsa20", "blowfish", "tea", "xor"
	Key     string `toml:"key"`      // pass phrase for Crypt, ignored when Crypt == ""
	Payload int    `toml:"payload"`  // echo payload size, bytes
	Count   int    `toml:"count"`    // client: number of round trips to run
	NoDelay bool   `toml:"no_delay"` // enable the low-latency profile
}

func newConfigRepr(fpath string) (*configRepr, error) {
	conf := configRepr{
		Listen:  "127.0.0.1:17890",
		Dial:    "127.0.0.1:17890",
		Conv:    1,
		Payload: 64,
		Count:   10,
	}
	if fpath == "" {
		return &conf, nil
	}
	if _, err := toml.DecodeFile(fpath, &conf); err != nil {
		return nil, errors.WithStack(err)
	}
	return &conf, nil
}
