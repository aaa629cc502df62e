package main

import (
	"os"

	"github.com/hitoshi/memberboard/internal/app"
)

func main() {
	os.Exit(app.Main())
}
