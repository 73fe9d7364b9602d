// Command handsign collects, balances and preprocesses a labeled hand sign
// image dataset and runs live webcam inference with a smoothed display label.
//
//	handsign capture 300 A --lighting
//	handsign preprocess
//	handsign balance --dry-run
//	handsign infer --serve 127.0.0.1:8080
package main
