// SPDX-License-Identifier: Apache-2.0

package model

import "fmt"

// InvalidFormatError reports a fqid, collection, or collectionfield that
// exceeds its bounded length or does not follow the expected shape.
type InvalidFormatError struct {
	Reason string
}

func (e InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid format: %s", e.Reason)
}
