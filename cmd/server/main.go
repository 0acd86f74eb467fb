package main

import "campus-chat/internal/app"

func main() {
	app.Run()
}
