// Package dynamodb persists session state records in an AWS DynamoDB
// table.
//
// The DynamoDB table is expected to have the following structure:
//
//	Hash Key: name=<KeyField> type="S"
//	Sort Key: none
//	Time to Live Attribute: name=<ExpirationField>
//
// Each session is one row: the key attribute, an optional numeric
// expiration attribute holding an epoch-seconds deadline, and one
// string attribute per session data field.
//
// The expired-record sweep performed by the state store issues a
// filtered scan, which DynamoDB executes as a full table scan. On large
// tables this consumes read capacity in proportion to the table size;
// enabling the native time-to-live attribute (done by CreateTable)
// lets DynamoDB remove most expired rows before a sweep ever sees them.
package dynamodb
