package main

import (
	"flag"
	"log"

	"github.com/danmuck/pdlp/internal/config"
)

func main() {
	kind := flag.String("kind", "device", "config kind: device|pdlpd")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing device profile")
	input := flag.String("input", "cmd/pdlpd/device.toml", "device profile path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		if _, err := config.LoadDeviceProfile(*input); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated device profile at %s", *input)
		return
	}

	target := *output
	if target == "" {
		switch *kind {
		case "device":
			target = "cmd/pdlpd/device.toml"
		case "pdlpd":
			target = "cmd/pdlpd/config.toml"
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
	}

	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
