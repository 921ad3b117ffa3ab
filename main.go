package main

import "github.com/signagecloud/access-management/cmd"

func main() {
	cmd.Execute()
}
