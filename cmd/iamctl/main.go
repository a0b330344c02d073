package main

import "github.com/spec-kit/iam-service/cmd/iamctl/cmd"

func main() {
	cmd.Execute()
}
