/*
Package security groups credential protection for the gateway.

The secrets subpackage encrypts upstream account credentials at rest
with AES-GCM under a PBKDF2-derived key:

	cipher, err := secrets.NewCipherFromSource(secrets.DefaultKeySource())
	if err != nil {
		log.Fatal(err)
	}
	enc, err := cipher.EncryptString(refreshToken)
*/
package security
