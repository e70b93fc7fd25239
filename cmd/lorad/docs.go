package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           lorad API
// @version         1.0
// @description     HTTP API for local LLM generation and LoRA fine-tuning.
//
// @contact.name   lorad maintainers
// @contact.url    https://github.com/your-org/lorad
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
