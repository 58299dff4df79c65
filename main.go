/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "planetbot/cmd"

func main() {
	cmd.Execute()
}
