/*
Package shardarc maintains release archives of short codes and their URLs,
split into shards by code range, and avoids recompressing shards whose
content did not change since the previous release.

Codes

Codes consist of digits and ASCII letters. They are ordered by length
first, then character by character with digits before lowercase before
uppercase letters:

    9 < a < z < A < Z < 00 < 0a < 0A < a0 < ...

Range Table

A range table assigns, per service, code ranges to shard files. A service
either has a single unconditional file or a list of disjoint, inclusive
ranges. File names are unique across the whole table.

    {
      "single": [{"file": "single/all"}],
      "ranged": [
        {"file": "ranged/0", "start": "0",  "stop": "zz"},
        {"file": "ranged/1", "start": "ZZ", "stop": "ZZZZZZ"}
      ]
    }

Shard

An uncompressed shard is a sequence of newline terminated records in
write order, without header or footer.

    +------+-----+-----+----+------+-----+-----+----+-------+
    | code | '|' | url | \n | code | '|' | url | \n |  ...  |
    +------+-----+-----+----+------+-----+-----+----+-------+

Release

Each release lives in its own root directory. A shard name is a relative
path, identical across releases. While writing, the shard is stored as
<name>.txt, after closing only the compressed artifact <name>.txt.xz (or
.txt.zst, .txt.sz, .txt.lz4) remains. If the digest of the new content
equals the digest of the previous release's decompressed artifact, the
previous artifact is copied byte for byte.
*/
package shardarc
