/*Package interval reads the genomic regions a consensus run is restricted
  to, either from a whitespace-delimited region list or from a single
  "contig:start-end" string.  Regions are kept as written; callers that need
  a per-position mask build one from the returned entries.
  It assumes every position fits in a PosType, which is currently defined as
  int32.
*/
package interval
