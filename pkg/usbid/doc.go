// Package usbid looks up vendor, product and class names in the USB ID
// database (usb.ids).
//
// The host stack itself works with numeric IDs only. Programs use this
// package to print what they enumerated:
//
//	db := usbid.New()
//	db.Load()
//	fmt.Println(db.Describe(desc.VendorID, desc.ProductID))
//
// Load searches DefaultPaths and falls back to a small built-in table
// covering the devices of the simulator when no database is installed.
// Parse reads any usb.ids formatted stream.
//
// All methods are safe for concurrent use.
package usbid
