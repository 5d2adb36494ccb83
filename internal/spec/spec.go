package spec

// Steganography constants
const (
	BITS_PER_BYTE   = 8  // Standard byte size
	CHANNELS        = 3  // RGB channels per pixel
	TERMINATOR_BITS = 16 // Run of one-bits closing the payload
)

// Security constants
const (
	KEY_SIZE     = 32     // AES-256 key size
	IV_SIZE      = 16     // CBC initialisation vector, prepended to the ciphertext
	BLOCK_SIZE   = 16     // AES block size, PKCS#7 pads to this
	PBKDF2_ITERS = 100000 // PBKDF2 iterations for passphrase-derived keys

	// Default salt for passphrase-derived keys when none is configured
	DEFAULT_SALT = "simulacra-lsb"
)

// Output defaults
const (
	DEFAULT_PREFIX = "stego_" // Prefix applied to the carrier's basename
)
