// Package imagen generates thumbnail images through the Google Generative
// Language Imagen predict endpoint and writes them to disk as PNG.
package imagen
