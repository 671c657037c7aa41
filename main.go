package main

import "github.com/rentalytics/rei-gateway/cmd"

func main() {
	cmd.Execute()
}
