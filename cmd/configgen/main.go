package main

import (
	"flag"
	"log"

	"github.com/danmuck/eppkit/internal/config"
)

var defaultPaths = map[string]string{
	"eppd":     "cmd/eppd/config.toml",
	"eppctl":   "cmd/eppctl/config.toml",
	"accounts": "cmd/eppd/accounts.toml",
}

func main() {
	kind := flag.String("kind", "eppd", "config kind: eppd|eppctl|accounts")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	def, ok := defaultPaths[*kind]
	if !ok {
		log.Fatalf("unknown kind: %s", *kind)
	}

	if *validate {
		path := *input
		if path == "" {
			path = def
		}
		if err := config.Validate(path, *kind); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		target = def
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
