package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"megabot.app/onboarding/tools/linters/enumvalidator"
)

func main() {
	singlechecker.Main(enumvalidator.Analyzer)
}
