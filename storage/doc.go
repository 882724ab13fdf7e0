// Package storage provides the provider adapters that back the redundancy
// engine.
//
// Each adapter implements the StorageProvider interface from the interfaces
// package against one external service:
//
//   - Firebase Storage for mutable object storage
//   - Dropbox for file synchronization storage
//   - Arweave for permanent append-only ledger storage
//   - IPFS for content-addressed storage, optionally with a remote pinning
//     service
//
// Adapters only ever see sealed envelopes. Encryption happens above this
// package and no adapter can decrypt what it stores.
//
// # Location URI Format
//
// Providers are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - firebase://TOKEN@bucket-name/prefix?endpoint=http://emulator:9199
//   - dropbox://ACCESS_TOKEN@/folder
//   - arweave://arweave.net/?wallet=/etc/engine/wallet.json&min-confirmations=2
//   - ipfs://127.0.0.1:5001/?pinning=https://ipfs.infura.io:5001&project-id=ID&project-secret=SECRET
//
// Credentials travel in the userinfo or query section. A URI without
// credentials still builds a provider; it reports IsConfigured false and
// fails initialization, which lets a deployment list providers it has not
// finished setting up yet.
//
// # Address Mapping
//
// Firebase and Dropbox address files by name, so their adapters are
// stateless. Arweave addresses by transaction ID and IPFS by CID, so those
// adapters persist a filename to address mapping in SQLite through KeyMap.
// The mapping is what makes retrieve-by-filename work after a restart, and
// for the ledger it also tracks whether a transaction has confirmed yet.
//
// # Delayed Confirmation
//
// Arweave transactions settle in minutes, not milliseconds. StoreData
// records the mapping as pending before waiting for confirmations, so a
// caller that times out can still find the write later: the next retrieval
// re-checks the transaction and promotes it to confirmed when the network
// caught up.
//
// # Usage Example
//
//	factory := storage.NewProviderFactory(logger, db)
//
//	providers, err := factory.ProvidersFor([]string{
//	    "firebase://TOKEN@backups.appspot.com/engine",
//	    "dropbox://ACCESS_TOKEN@/backups",
//	    "arweave://arweave.net/?wallet=/etc/engine/wallet.json",
//	    "ipfs://127.0.0.1:5001/",
//	})
//	if err != nil {
//	    log.Fatalf("Failed to create providers: %v", err)
//	}
package storage
