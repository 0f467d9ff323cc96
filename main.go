package main

import "github.com/frahmantamala/pagepay/cmd"

func main() {
	cmd.Execute()
}
