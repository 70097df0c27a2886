// Package password provides Argon2id password hashing for Expertly accounts.
//
// Hashes are stored in PHC string format:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
//
// Verification parses stored hashes strictly and refuses parameter sets far
// above the configured cost, so attacker-supplied hash strings cannot drive
// pathological resource usage.
package password
