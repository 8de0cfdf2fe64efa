package main

import "github.com/QQcutePig/RIOimgDownload/cmd"

func main() {
	cmd.Execute()
}
