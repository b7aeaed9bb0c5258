// Package domain defines the core business entities of the image generation
// service: users and the durable Generation record that tracks each attempt
// to produce an image, along with their validation rules and state machines.
package domain
