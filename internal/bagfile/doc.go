// Package bagfile parses inbound archival transfer packages: the bag-info
// style metadata file carrying the origin identifier, and the payload
// directory whose filenames encode presentation order.
package bagfile
