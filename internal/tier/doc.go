// Package tier drives assets through the Bronze, Silver and Gold storage
// tiers.
//
// Every transition follows the same shape: the new file is written under a
// temporary name and renamed into its tier directory, then a single catalog
// transaction records the FileVersion change together with its history rows.
// When the transaction fails the new file is removed, so the catalog and the
// tier directories never disagree about which versions exist.
//
// Transitions on one asset are serialized by a per-asset lock; ingestion is
// serialized per content hash so two copies of the same photo arriving at once
// produce one asset and one duplicate.
package tier
