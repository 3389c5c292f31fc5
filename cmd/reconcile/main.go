package main

import "github.com/warp/schedule-recon/cmd/reconcile/cmd"

func main() {
	cmd.Execute()
}
