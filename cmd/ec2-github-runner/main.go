package main

import (
	"github.com/mtsoltan/ec2-github-runner/internal/command/root"
	_ "github.com/mtsoltan/ec2-github-runner/internal/command/start"
	_ "github.com/mtsoltan/ec2-github-runner/internal/command/stop"
)

func main() {
	root.Execute()
}
