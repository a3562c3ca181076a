package main

import "insights-exporter/internal/bootstrap"

func main() {
	bootstrap.NewApp().Run()
}
